// Package audit delivers security events to a pluggable sink without
// blocking the request path.
//
// [Dispatcher] owns a buffered queue and one delivery goroutine. Sinks
// provided here are [NoOpSink], [ChannelSink], [LogSink], [MultiSink]
// and [SinkFunc]; the RabbitMQ sink lives in audit/amqpsink.
//
// Metadata entries named password, secret, token or code (alone or as a
// "_" suffix) are removed before an event is queued.
//
// The package does not decide which events exist. Event names and their
// metadata are chosen by the engine and the flows.
package audit
