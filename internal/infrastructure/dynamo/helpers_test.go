package dynamo

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	expr, names, values, err := buildUpdateExpr(map[string]interface{}{"pending_code": "123456"})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", expr)
	assert.Equal(t, map[string]string{"#f0": "pending_code"}, names)
	_, ok := values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	updates := map[string]interface{}{
		"verified_at":  "2026-01-01T00:00:00Z",
		"alerts":       []string{"goals"},
		"pending_code": nil,
	}
	expr1, names1, _, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	expr2, _, _, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, expr1, expr2)

	// Keys must be sorted: alerts < pending_code < verified_at
	assert.Equal(t, "alerts", names1["#f0"])
	assert.Equal(t, "pending_code", names1["#f1"])
	assert.Equal(t, "verified_at", names1["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", expr1)
}

func TestBuildUpdateExpr_NilClearsAttribute(t *testing.T) {
	_, _, values, err := buildUpdateExpr(map[string]interface{}{"pending_code": nil})
	require.NoError(t, err)
	av, ok := values[":v0"]
	require.True(t, ok)
	nullVal, isNull := av.(*types.AttributeValueMemberNULL)
	require.True(t, isNull)
	assert.True(t, nullVal.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, _, _, err := buildUpdateExpr(map[string]interface{}{})
	assert.ErrorContains(t, err, "no fields to update")
}
