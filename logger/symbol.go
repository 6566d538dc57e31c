package logger

import (
	"github.com/teranos/tradepulse/sym"
	"go.uber.org/zap"
)

// Symbol-aware logging helpers.
// The symbol goes into a structured field, not the message, so logs stay
// queryable by subsystem:
//
//	t.log = logger.AddPulseSymbol(baseLogger)
//	t.log.Infow("Schedule fired", logger.FieldScheduleID, id)

// PulseInfow logs an info message with the Pulse symbol (꩜)
func PulseInfow(msg string, keysAndValues ...interface{}) {
	SymbolInfow(sym.Pulse, msg, keysAndValues...)
}

// PulseOpenInfow logs startup of a background loop (✿)
func PulseOpenInfow(msg string, keysAndValues ...interface{}) {
	SymbolInfow(sym.PulseOpen, msg, keysAndValues...)
}

// PulseCloseInfow logs graceful shutdown of a background loop (❀)
func PulseCloseInfow(msg string, keysAndValues ...interface{}) {
	SymbolInfow(sym.PulseClose, msg, keysAndValues...)
}

// DBInfow logs an info message with the DB symbol (⊔)
func DBInfow(msg string, keysAndValues ...interface{}) {
	SymbolInfow(sym.DB, msg, keysAndValues...)
}

// SymbolInfow logs with any symbol
func SymbolInfow(symbol, msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, symbol}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// WithSymbol returns the global logger with the given symbol as a field.
func WithSymbol(symbol string) *zap.SugaredLogger {
	return Logger.With(FieldSymbol, symbol)
}

// AddPulseSymbol wraps a logger with the Pulse symbol (꩜)
func AddPulseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Pulse)
}

// AddApprovalSymbol wraps a logger with the Approval symbol (⊜)
func AddApprovalSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Approval)
}

// AddGatewaySymbol wraps a logger with the Gateway symbol (⟶)
func AddGatewaySymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Gateway)
}

// AddKillSwitchSymbol wraps a logger with the KillSwitch symbol (⏻)
func AddKillSwitchSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.KillSwitch)
}

// AddDBSymbol wraps a logger with the DB symbol (⊔)
func AddDBSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.DB)
}
