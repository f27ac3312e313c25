package internal

import (
	"io"
	"log"
)

// DebugLogger receives representation transitions (list to set, sparse to windowed, union
// graduation and so on). It discards everything until a caller points it somewhere, e.g.
//
//	internal.DebugLogger.SetOutput(os.Stderr)
var DebugLogger = log.New(io.Discard, "[datasketches][debug] ", log.LstdFlags)
