package llms

// TokenStream lazily yields generated tokens in model emission order. No
// request is made before the stream is iterated, and returning false from
// yield abandons generation between tokens.
type TokenStream func(yield func(Token, error) bool)
