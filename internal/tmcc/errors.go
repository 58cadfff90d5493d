package tmcc

import "github.com/pytrain/pytrain/internal/pytrainerr"

var errOutOfRange = pytrainerr.ErrOutOfRange
