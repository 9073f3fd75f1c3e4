/*
Package hey holds what the rest of the module shares: the root literal every
node state grows from, the kyber suite used to name states, and the error
wrapper used at storage and network boundaries.

A node is a recursive bit tree (package node). Its state evolves by folding
every input into it (package evolve), optionally biased by a deterministic
bit stream (package entropy). Each state is appended to a frame log (package
framelog), and its encoded length picks the UDP port the node serves on
(package mesh). Nodes started on the same host discover each other through
the port derived from the root literal.

Run a node with

	go run ./hey run --log frames.log

and type lines on stdin; they are folded into the state and sent to every
known peer.
*/
package hey
