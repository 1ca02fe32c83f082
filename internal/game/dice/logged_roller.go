package dice

import "go.uber.org/zap"

// Roller wraps a Source and logger to provide logged rolls.
// Every draw is logged at debug level with its value.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that draws from src and logs each draw to logger.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Draw returns a float in [0, 1) and logs it at debug level.
//
// Postcondition: 0 <= result < 1.
func (r *Roller) Draw() float64 {
	v := Unit(r.src)
	r.logger.Debug("dice roll", zap.Float64("roll", v))
	return v
}
