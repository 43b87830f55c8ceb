// Package protocol implements the length-prefixed JSON message protocol spoken with external resolver processes.
//
// Every message is a 4-byte big-endian unsigned length L followed by exactly L bytes of UTF-8 JSON
// whose top level is an object carrying a "_msgtype" string. A [Decoder] reassembles frames from
// arbitrarily fragmented reads; [Parse] turns a frame into one of the typed messages.
//
// Framing never depends on payload content: a frame that is not a JSON object is reported and
// dropped, and the stream stays in sync.
package protocol
