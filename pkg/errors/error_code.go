package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation / ConfigError errors (100-199)
	ErrCodeInvalidParameter ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidExecuteOrder ErrorCode = 102
	ErrCodeInvalidTakeProfit ErrorCode = 103
	ErrCodeInvalidStopLoss ErrorCode = 104
	ErrCodeInvalidOrder ErrorCode = 105
	ErrCodeInsufficientData ErrorCode = 106
	ErrCodeInvalidType ErrorCode = 107
	ErrCodeMissingParameter ErrorCode = 109
	ErrCodeInvalidSizingIntent ErrorCode = 120
	ErrCodeInvalidSignal ErrorCode = 121
	ErrCodeUnknownEngine ErrorCode = 122
	ErrCodeUnknownBroker ErrorCode = 123
	ErrCodeUnknownDataSource ErrorCode = 124
	ErrCodeAllocationExceeded ErrorCode = 125
	ErrCodeStrategyFileNotFound ErrorCode = 126
	ErrCodeInsufficientCreds ErrorCode = 127

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeQueryFailed ErrorCode = 202
	ErrCodeHistoricalDataFailed ErrorCode = 203
	ErrCodeNoDataFound ErrorCode = 204
	ErrCodeBufferNotReady ErrorCode = 206
	ErrCodeStaleBuffer ErrorCode = 207

	// Strategy errors (400-499)
	ErrCodeStrategyNotLoaded ErrorCode = 400
	ErrCodeStrategyConfigError ErrorCode = 401
	ErrCodeStrategyRuntimeError ErrorCode = 402
	ErrCodeUnsupportedStrategy ErrorCode = 403
	ErrCodeEvaluatorTimeout ErrorCode = 405
	ErrCodeStrategyNotFound ErrorCode = 406

	// Trading errors (500-599)
	ErrCodeOrderFailed ErrorCode = 500
	ErrCodePositionNotFound ErrorCode = 501
	ErrCodeMarketDataMissing ErrorCode = 502
	ErrCodeBelowMinNotional ErrorCode = 503
	ErrCodeInsufficientCash ErrorCode = 504
	ErrCodeInsufficientShares ErrorCode = 505
	ErrCodeMaxPositionSize ErrorCode = 506
	ErrCodeBelowMinLot ErrorCode = 507
	ErrCodeUnsupportedOrder ErrorCode = 508
	ErrCodeShortingDisabled ErrorCode = 509

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataWriteFailed ErrorCode = 701
	ErrCodeMarketDataParseFailed ErrorCode = 702
	ErrCodeInvalidTimespan ErrorCode = 703
	ErrCodeInvalidProvider ErrorCode = 704

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800

	// TransientUpstreamError (900-919): provider/broker timeout, disconnect, 5xx. Retried.
	ErrCodeUpstreamTimeout ErrorCode = 900
	ErrCodeUpstreamDisconnected ErrorCode = 901
	ErrCodeUpstreamServerError ErrorCode = 902

	// PermanentUpstreamError (920-939): 4xx, invalid symbol, rejected credentials. Stops the runner.
	ErrCodeUpstreamRejected ErrorCode = 920
	ErrCodeInvalidSymbol ErrorCode = 921
	ErrCodeCredentialsRejected ErrorCode = 922
	ErrCodeUpstreamUnauthorized ErrorCode = 923

	// StrategyError (940-959): evaluator raised, timed out, or produced an invalid signal.
	ErrCodeEvaluatorPanicked ErrorCode = 940
	ErrCodeEvaluatorErrored ErrorCode = 941
	ErrCodeTooManyConsecutive ErrorCode = 942

	// InvariantViolation (990-999): fatal, crashes the process.
	ErrCodeLedgerInvariant ErrorCode = 990
	ErrCodeOrderingViolation ErrorCode = 991
	ErrCodeBufferMonotonic ErrorCode = 992
	ErrCodeDuplicateFill ErrorCode = 993
)
