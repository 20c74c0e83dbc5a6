package agent

import "context"

// unsure answers plans the model could not classify, including every plan
// that failed validation.
func unsure(context.Context, Request) (string, error) {
	return MsgUnsure, nil
}
