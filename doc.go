/*
Package svxlink provides the core types for push-based audio pipelines.

Concept

Audio flows through the pipeline as blocks of mono float64 samples.
Producers push blocks into sinks:

	Sink - a consumer of sample blocks;
	Source - the notification surface of a producer.

A producer pushes with WriteSamples and ends the stream with
FlushSamples. Flow control runs the other way: the sink calls back into
the source registered with SetSource. All calls are synchronous,
same-stack calls; the whole pipeline cooperates on a single goroutine
and relies on the async package to defer work that must not run inside
a notification.

Backpressure

WriteSamples returns how many of the offered samples the sink accepted.
A short count suspends the producer until the sink calls ResumeOutput
on its registered source; the sink must never be written to again
before that. Which side owns the unaccepted remainder depends on the
sink: the splitter retains it in its shared backlog and replays it to
the lagging branches itself, so its producer resumes with fresh
samples. A sink without a replay buffer of its own accepts short and
is re-offered the missing range by its producer, which is exactly what
the splitter does for its branches.

Flushing

FlushSamples asks the sink to emit everything it has buffered. The sink
confirms with AllSamplesFlushed once it has no more data to emit; the
confirmation can arrive synchronously from inside the flush request or
any time later.

Components

Concrete components live in subpackages: split fans one stream out to
many sinks, tone detects tone frequencies, wav and mp3 read and write
files, portaudio plays on the default device. Components that act as
sinks embed SourceHolder for the registration plumbing.
*/
package svxlink
