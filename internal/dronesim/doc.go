// Package dronesim emulates the vehicle side of both UDP channels.
//
// The simulator accepts AT commands on one socket and streams NAVDATA to
// whichever peer sent the 1-byte start request on the other. It walks
// through the bootstrap, handshake and demo phases as the real firmware
// does and flips the fly and emergency bits some time after the matching
// REF command, which is enough to drive the flight helpers end to end.
package dronesim
