package utils

import (
	"strings"
	"time"

	"github.com/goombaio/namegenerator"
)

// GenerateClientName creates a random, memorable client name using namegenerator
func GenerateClientName() string {
	seed := time.Now().UTC().UnixNano()
	nameGenerator := namegenerator.NewNameGenerator(seed)

	// Generate a name like "wispy-dust"
	name := nameGenerator.Generate()

	// Some names might have underscores; convert to hyphens for consistency
	name = strings.ReplaceAll(name, "_", "-")

	return name
}
