package parser

import "fjacquet/stmt-ledger/internal/logging"

// BaseParser carries the logger shared by parser implementations. Parsers
// embed it:
//
//	type Parser struct {
//		parser.BaseParser
//	}
type BaseParser struct {
	logger logging.Logger
}

// NewBaseParser returns a BaseParser using logger, or a default logrus
// adapter when logger is nil.
func NewBaseParser(logger logging.Logger) BaseParser {
	if logger == nil {
		logger = logging.NewLogrusAdapter("info", "text")
	}
	return BaseParser{logger: logger}
}

// SetLogger replaces the logger; nil is ignored.
func (b *BaseParser) SetLogger(logger logging.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// GetLogger returns the parser's logger.
func (b *BaseParser) GetLogger() logging.Logger {
	return b.logger
}
