// Package llms defines the conversation model and the streaming generation
// contract shared by all language model providers.
package llms

// Turn is one user/assistant exchange. An interrupted turn keeps whatever
// assistant text was spoken before the interruption; the partial text is
// still part of the conversation as far as the model is concerned.
type Turn struct {
	ID          string
	User        string
	Assistant   string
	Interrupted bool
}

// Token is one increment of generated assistant text. The turn ID lets
// consumers discard tokens that belong to a superseded turn.
type Token struct {
	TurnID string
	Text   string
}
