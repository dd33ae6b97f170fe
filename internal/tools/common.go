package tools

import "github.com/dataplane-ai/analyst-agent/internal/agenterrors"

// kindOf returns err's AgentError kind, or KindLLMTransport if err was not
// already one of the structured §7 kinds.
func kindOf(err error) agenterrors.Kind {
	if k := agenterrors.KindOf(err); k != "" {
		return k
	}
	return agenterrors.KindLLMTransport
}
