package batch

import (
	"errors"
	"fmt"
)

var errNoOperation = errors.New("no operation for item")

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
