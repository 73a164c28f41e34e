package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatroom-server/internal/config"
)

func TestBuildCensorUsesBuiltinWords(t *testing.T) {
	cfg := config.Default()

	censor, err := buildCensor(&cfg)
	require.NoError(t, err)
	require.Equal(t, "what the ****", censor.Censor("what the fuck"))

	cfg.UseDefaultCensoredWords = false
	censor, err = buildCensor(&cfg)
	require.NoError(t, err)
	require.Equal(t, "what the fuck", censor.Censor("what the fuck"))
}

func TestBuildCensorMergesConfiguredWords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("# extra\nsnake\n"), 0o600))

	cfg := config.Default()
	cfg.CensoredWords = []string{"badger"}
	cfg.CensoredWordsFile = path

	censor, err := buildCensor(&cfg)
	require.NoError(t, err)
	require.Equal(t, "****** and ***** and ****", censor.Censor("badger and snake and fuck"))
}
