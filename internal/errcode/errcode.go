package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如格式不支持、凭证无效）
// - 5xxx：系统错误（需要中断流程）
const (
	OK                = 0
	ValidationFailed  = 4001
	DuplicateEmail    = 4009
	UnsupportedFormat = 4015
	NotFound          = 4004
	SystemError       = 5000
)
