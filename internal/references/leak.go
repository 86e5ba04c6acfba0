package references

import (
	"github.com/sirupsen/logrus"
)

// LeakReport 描述一个未显式关闭就被回收的句柄。
type LeakReport struct {
	ValueType string
	Policy    Policy
	ValueHash uintptr
	Trace     string
}

// LeakHandler 接收泄漏报告。调用发生在 GC 的 finalizer goroutine 中，
// 实现必须快速返回且不得 panic。
type LeakHandler interface {
	ReportLeak(report LeakReport)
}

// LeakHandlerFunc 将函数适配为 LeakHandler。
type LeakHandlerFunc func(report LeakReport)

// ReportLeak 让 LeakHandlerFunc 满足 LeakHandler。
func (f LeakHandlerFunc) ReportLeak(report LeakReport) {
	f(report)
}

// logrusLeakHandler 是默认实现，写入 logrus 标准 logger。
type logrusLeakHandler struct {
	entry *logrus.Entry
}

// NewLogrusLeakHandler 构建写入指定 logger 的泄漏处理器；logger 为 nil 时使用标准 logger。
func NewLogrusLeakHandler(logger *logrus.Logger) LeakHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logrusLeakHandler{entry: logrus.NewEntry(logger)}
}

func (h logrusLeakHandler) ReportLeak(report LeakReport) {
	fields := logrus.Fields{
		"action":     "reference_leak",
		"value_type": report.ValueType,
		"policy":     report.Policy.String(),
		"value_hash": report.ValueHash,
	}
	if report.Trace != "" {
		fields["trace"] = report.Trace
	}
	h.entry.WithFields(fields).Warn("finalized without closing")
}
