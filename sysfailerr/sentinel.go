package sysfailerr

// Sentinel errors for the common, non-parameterized failure cases. Use
// errors.Is(err, sysfailerr.ErrAlreadyActive) (etc.) rather than comparing
// Kind directly when the caller doesn't need the wrapped detail.
var (
	// ErrAlreadyActive indicates a Session already exists in this process.
	ErrAlreadyActive = &Error{Kind: AlreadyActive, Detail: "a session is already active"}

	// ErrMapNotFound indicates zero or more than one executable range
	// matched the self-text pattern.
	ErrMapNotFound = &Error{Kind: MapNotFound, Detail: "self-text range not uniquely identified"}

	// ErrSignalInstallFailed indicates sigaction failed for one of the
	// engine's signals.
	ErrSignalInstallFailed = &Error{Kind: SignalInstallFailed, Detail: "failed to install signal handler"}

	// ErrKernelRefusedDispatch indicates PR_SET_SYSCALL_USER_DISPATCH failed.
	ErrKernelRefusedDispatch = &Error{Kind: KernelRefusedDispatch, Detail: "kernel refused syscall user dispatch"}

	// ErrMonitorStartFailed indicates the thread-discovery poller could not
	// be started.
	ErrMonitorStartFailed = &Error{Kind: MonitorStartFailed, Detail: "failed to start thread monitor"}

	// ErrInvalidProbability indicates a Probability's p or after_bias is
	// outside [0,1].
	ErrInvalidProbability = &Error{Kind: InvalidArgument, Detail: "probability must be in [0,1]"}

	// ErrEmptyErrorWeights indicates fail.p > 0 with no error weights.
	ErrEmptyErrorWeights = &Error{Kind: InvalidArgument, Detail: "fail probability > 0 requires at least one error weight"}

	// ErrNonPositiveWeight indicates an error weight was <= 0 or non-finite.
	ErrNonPositiveWeight = &Error{Kind: InvalidArgument, Detail: "error weights must be positive and finite"}

	// ErrZeroMaxDelay indicates delay.p > 0 with max_delay == 0.
	ErrZeroMaxDelay = &Error{Kind: InvalidArgument, Detail: "delay probability > 0 requires a positive max delay"}

	// ErrNoActiveSession indicates an operation was attempted with no live
	// Session (e.g. rescan after Close).
	ErrNoActiveSession = &Error{Kind: Internal, Detail: "no active session"}
)
