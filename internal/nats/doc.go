// Package nats publishes device events to NATS and receives control
// commands from it.
//
// # Subjects
//
//	camrelay.status.{name}    # device status, JSON object
//	camrelay.motion.{name}    # motion change, JSON bool
//	camrelay.picture.{name}   # snapshot, {"filename": "...", "payload": base64}
//	camrelay.state.{name}     # camera state transition
//	camrelay.crash.{name}     # ffmpeg exited and is being restarted
//	camrelay.control.{name}   # commands (service ← client)
//
// The prefix is configurable. Camera control payloads are START, STOP or
// SNAPSHOT; base station payloads are JSON, e.g. {"mode":"armed"} or
// {"siren":{"duration":30,"volume":8}}. Control requests with a reply
// subject are answered with "ok" or "error: <reason>".
//
// Messages are fire-and-forget (core NATS, no JetStream). Events raised
// while disconnected are dropped.
//
// # Debugging with nats CLI
//
//	nats sub "camrelay.>"
//	nats req "camrelay.control.front_door" START
//	nats pub "camrelay.control.home_base" '{"mode":"armed"}'
//
// For setups without a broker, Server runs an embedded one.
package nats
