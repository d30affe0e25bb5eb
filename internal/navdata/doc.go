// Package navdata implements the inbound telemetry channel of the vehicle.
//
// It decodes the binary NAVDATA stream (header, 32-bit state mask and the
// navdata_demo option), rejects replayed datagrams by their embedded
// sequence number and drives the four-state handshake machine that decides
// whether the demo option is present in a packet.
//
// Vehicle SDK References:
//   - ARDroneLib/Soft/Common/config.h: def_ardrone_state_mask_t
//   - ARDroneLib/Soft/Common/control_states.h: CTRL_STATES
//   - ARDroneLib/Soft/Lib/ardrone_tool/Navdata/ardrone_navdata_client.c
package navdata
