package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/rolecounter/internal/app"
	_ "github.com/odyssey-erp/rolecounter/internal/testing/guard"
)

func TestMainSkipsInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	main()
}
