package resources

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const compoundProblem = `{
  "type": "urn:ietf:params:acme:error:malformed",
  "detail": "Some of the identifiers requested were rejected",
  "status": 400,
  "subproblems": [
    {
      "type": "urn:ietf:params:acme:error:malformed",
      "detail": "Invalid underscore in DNS name \"_example.org\"",
      "identifier": {"type": "dns", "value": "_example.org"}
    },
    {
      "type": "urn:ietf:params:acme:error:rejectedIdentifier",
      "detail": "This CA will not issue for \"example.net\"",
      "identifier": {"type": "dns", "value": "example.net"}
    }
  ]
}`

func TestProblemSubproblems(t *testing.T) {
	var prob Problem
	require.NoError(t, json.Unmarshal([]byte(compoundProblem), &prob))

	assert.Equal(t, 400, prob.Status)
	require.Len(t, prob.Subproblems, 2)

	sub := prob.For("example.net")
	require.NotNil(t, sub)
	assert.Equal(t, "urn:ietf:params:acme:error:rejectedIdentifier", sub.Type)
	assert.Nil(t, prob.For("example.com"))

	assert.Contains(t, prob.String(), "(_example.org)")
	assert.Contains(t, prob.String(), "will not issue")
}
