// Package protocol defines the link's wire framing.
//
// Every frame, inbound or outbound, is a JSON object with at least a
// "type" string field. Two types are reserved for the link itself and are
// never delivered to application subscribers:
//
//	{"type":"ping","id":"<uuid>","timestamp":1700000000000}
//	{"type":"pong","id":"<uuid>"}
//
// All other frames are passed through untouched.
package protocol
