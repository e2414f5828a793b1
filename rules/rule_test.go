package rules

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestExprEvaluator tests the ExprEvaluator implementation.
func TestExprEvaluator(t *testing.T) {
	evaluator := NewExprEvaluator()

	tests := []struct {
		name       string
		expression string
		context    map[string]interface{}
		wantResult bool
		wantErr    bool
		errMsg     string
	}{
		{
			name:       "Node count above threshold",
			expression: "nodeCount > 3",
			context:    map[string]interface{}{"nodeCount": 4},
			wantResult: true,
			wantErr:    false,
		},
		{
			name:       "Node count below threshold",
			expression: "nodeCount < 3",
			context:    map[string]interface{}{"nodeCount": 4},
			wantResult: false,
			wantErr:    false,
		},
		{
			name:       "Non-boolean result",
			expression: "nodeCount + 5",
			context:    map[string]interface{}{"nodeCount": 4},
			wantResult: false,
			wantErr:    true,
			errMsg:     "expression 'nodeCount + 5' did not evaluate to a boolean, got int",
		},
		{
			name:       "Invalid expression",
			expression: "nodeCount >>> 3",
			context:    map[string]interface{}{"nodeCount": 4},
			wantResult: false,
			wantErr:    true,
			errMsg:     "unexpected token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(tt.expression, tt.context)
			if tt.wantErr {
				assert.Error(t, err, "Evaluate() should return an error")
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg, "Error message should match")
				}
				assert.Equal(t, tt.wantResult, result, "Evaluate() result should match even with error")
			} else {
				assert.NoError(t, err, "Evaluate() should not return an error")
				assert.Equal(t, tt.wantResult, result, "Evaluate() result should match")
			}
		})
	}

	// Test caching: Evaluate the same expression twice and ensure consistent results
	t.Run("Caching works", func(t *testing.T) {
		expr := `category == "video"`
		context := map[string]interface{}{"category": "video"}

		result1, err1 := evaluator.Evaluate(expr, context)
		assert.NoError(t, err1)
		assert.True(t, result1)

		result2, err2 := evaluator.Evaluate(expr, context)
		assert.NoError(t, err2)
		assert.True(t, result2)
	})

	// Test concurrency: Multiple goroutines evaluating expressions
	t.Run("Concurrent evaluation", func(t *testing.T) {
		var wg sync.WaitGroup
		numGoroutines := 100
		expr := `"merge" in kinds`
		context := map[string]interface{}{"kinds": []string{"prompt", "merge"}}

		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func() {
				defer wg.Done()
				result, err := evaluator.Evaluate(expr, context)
				assert.NoError(t, err)
				assert.True(t, result)
			}()
		}
		wg.Wait()
	})

	t.Run("Template fields", func(t *testing.T) {
		env := map[string]interface{}{
			"category":  "video",
			"nodeCount": 4,
			"kinds":     []string{"prompt", "textToVideo", "upscale", "preview"},
		}
		result, err := evaluator.Evaluate(`category == "video" && "upscale" in kinds && nodeCount > 3`, env)
		assert.NoError(t, err)
		assert.True(t, result)
	})

	t.Run("Empty expression matches", func(t *testing.T) {
		result, err := evaluator.Evaluate("  ", nil)
		assert.NoError(t, err)
		assert.True(t, result)
	})

	t.Run("Programs are cached", func(t *testing.T) {
		ev := NewExprEvaluator()
		env := map[string]interface{}{"x": 1}
		_, _ = ev.Evaluate("x == 1", env)
		_, _ = ev.Evaluate("x == 1", env)
		assert.Equal(t, 1, ev.Cached())
	})
}

// BenchmarkEvaluate benchmarks the performance of Evaluate with and without caching.
func BenchmarkEvaluate(b *testing.B) {
	evaluator := NewExprEvaluator()
	expression := `category == "audio" || nodeCount > 5`
	context := map[string]interface{}{"category": "video", "nodeCount": 6}

	// Reset timer to exclude setup time
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = evaluator.Evaluate(expression, context)
	}
}
