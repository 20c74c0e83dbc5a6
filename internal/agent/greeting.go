package agent

import "context"

// greet answers a GREETING plan.
func greet(context.Context, Request) (string, error) {
	return MsgGreeting, nil
}
