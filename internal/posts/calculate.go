package posts

import (
	"fmt"
	"math"
)

// CalculationError reports a domain-level arithmetic failure. Its message is
// surfaced verbatim to the client.
type CalculationError struct {
	Message string
}

func (e *CalculationError) Error() string {
	return e.Message
}

// calculate applies an operation symbol to the parent value and operand.
// Exponentiation follows standard real semantics: domain errors such as a
// negative base with a fractional exponent produce NaN rather than failing.
func calculate(parentValue float64, operation string, operand float64) (float64, error) {
	switch operation {
	case "+":
		return parentValue + operand, nil
	case "-":
		return parentValue - operand, nil
	case "*":
		return parentValue * operand, nil
	case "/":
		if operand == 0 {
			return 0, &CalculationError{Message: "Division by zero is not allowed"}
		}
		return parentValue / operand, nil
	case "^":
		return math.Pow(parentValue, operand), nil
	default:
		return 0, &CalculationError{Message: fmt.Sprintf("Unsupported operation: %s", operation)}
	}
}
