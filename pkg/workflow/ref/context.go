package ref

// Context holds the values refs resolve against. It is built once per
// execution attempt and is not shared between workers.
type Context struct {
	// StepOutputs maps step name to the step's recorded output.
	StepOutputs map[string]any

	// WorkflowInput is the execution's input value.
	WorkflowInput any

	// Item and Index are set inside a for-each iteration.
	Item    any
	Index   int
	HasItem bool
}

// NewContext creates a context from workflow input and completed step
// outputs.
func NewContext(input any, stepOutputs map[string]any) *Context {
	if stepOutputs == nil {
		stepOutputs = make(map[string]any)
	}
	return &Context{
		StepOutputs:   stepOutputs,
		WorkflowInput: input,
	}
}

// WithItem returns a copy of the context augmented with a for-each
// element. The receiver is not modified; iterations never share mutable
// state.
func (c *Context) WithItem(item any, index int) *Context {
	outputs := make(map[string]any, len(c.StepOutputs))
	for k, v := range c.StepOutputs {
		outputs[k] = v
	}
	return &Context{
		StepOutputs:   outputs,
		WorkflowInput: c.WorkflowInput,
		Item:          item,
		Index:         index,
		HasItem:       true,
	}
}

// SetOutput records a step output. Not safe for concurrent writes; the
// executor merges level results under its own synchronization.
func (c *Context) SetOutput(stepName string, output any) {
	c.StepOutputs[stepName] = output
}
