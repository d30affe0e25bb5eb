// Package control is the flight API built on the command scheduler and the
// navdata session state.
//
// Flight helpers enqueue entries whose Tick reads the latest status flags,
// so a REF takeoff keeps being sent until the vehicle reports it is flying.
// The client also answers the NAVDATA handshake: it requests the demo
// option when the vehicle is in bootstrap mode and acknowledges it once the
// vehicle raises the command ack flag.
package control
