package telemetry

// Log and metric tag keys shared across the execution core, so every
// component that instruments a run uses the same dimension names instead of
// ad hoc strings scattered through pipeline/tool/trace. Grouped here rather
// than per-package because the same run/session identifiers cross package
// boundaries constantly (a step committed in pipeline, a span opened in
// trace, a batch dispatched in tool all tag by the same keys).
const (
	LogKeyRunID     = "run_id"
	LogKeySessionID = "session_id"
	LogKeyStepID    = "step_id"
	LogKeySpanID    = "span_id"
	LogKeyError     = "error"
)

// Metric names emitted by the Step Pipeline, ToolExecutor, and AgentExecutor.
// Dotted, lower-case, component-prefixed to match the convention the rest of
// this module's metrics already follow.
const (
	MetricStepCommitted     = "pipeline.step_committed"
	MetricStepPersistFailed = "pipeline.save_step_failed"
	MetricToolBatchExecuted = "tool.batch_executed"
	MetricRunCompleted      = "executor.run_completed"
	MetricRunFailed         = "executor.run_failed"
)

// instrumentationName identifies this module's OTEL meter/tracer, and is
// attached to every span Clue emits so spans from this execution core are
// distinguishable from spans emitted by a host application embedding it.
const instrumentationName = "github.com/agentcore-run/agentcore"
