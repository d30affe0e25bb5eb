// Package command implements the outbound AT command channel.
//
// Callers enqueue Entry values on a Scheduler. Every cycle the scheduler
// asks each entry whether it wants to be sent, renders it with the next
// sequence number, packs the rendered lines into one size-bounded datagram
// and sends it to the vehicle's command port.
//
// References:
//   - ARDroneLib/Soft/Common/config.h: AT port and payload limit
//   - ARDroneLib/Soft/Lib/ardrone_tool/AT/ardrone_at_mutex.c: command formats
package command
