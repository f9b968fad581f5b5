package guard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	env, err := NewEnv()
	require.NoError(t, err)

	require.NoError(t, env.Compile(`handler == "write" && fields["runtime.retries"] > 0`))
	require.NoError(t, env.Compile(`input.size < 10`))
	require.Error(t, env.Compile(`handler ==`), "syntax error")
	require.Error(t, env.Compile(`undeclared_var == 1`), "unknown identifier")
	require.Error(t, env.Compile(`"not a bool"`), "non-bool result")
}

func TestInspect(t *testing.T) {
	env, err := NewEnv()
	require.NoError(t, err)

	issues, err := env.Inspect(`handler == "x"`)
	require.NoError(t, err)
	require.Empty(t, issues)

	issues, err = env.Inspect(`now() > timestamp("2024-01-01T00:00:00Z") && input.ratio > 0.5`)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	require.Equal(t, RuleClockRead, issues[0].Rule)
	require.Equal(t, RuleFloatLiteral, issues[1].Rule)

	issues, err = env.Inspect(`input.keys().exists(k, k == "a") || random() == 1`)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	require.Equal(t, RuleMapIteration, issues[0].Rule)
	require.Equal(t, RuleRandomness, issues[1].Rule)

	_, err = env.Inspect(`(`)
	require.Error(t, err)
}
