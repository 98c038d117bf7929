package provbatch

import (
	"errors"
	"fmt"

	"github.com/sethvargo/go-password/password"
)

const (
	// defaultPrefix seeds generated resource IDs when none is configured.
	defaultPrefix = "provbatch"
	// defaultSuffixLen is the length of the random ID suffix.
	defaultSuffixLen = 9
)

// Namer produces the resource ID for the i-th generated task of a batch.
type Namer func(i int) (string, error)

// PrefixNamer returns a Namer that joins the prefix with a random lowercase
// alphanumeric suffix, e.g. "loadtest-x7k2m9q4p". Roughly a third of the
// suffix is digits, mirroring common cloud resource naming limits (lowercase
// letters, digits, hyphens).
func PrefixNamer(prefix string, suffixLen int) (Namer, error) {
	if prefix == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("naming prefix is empty"))
	}
	if suffixLen < 1 {
		return nil, errors.Join(ErrInvalidConfig, errors.New("suffix length must be at least 1"))
	}

	gen, err := password.NewGenerator(&password.GeneratorInput{
		LowerLetters: password.LowerLetters,
		Digits:       password.Digits,
	})
	if err != nil {
		return nil, err
	}

	return func(_ int) (string, error) {
		suffix, err := gen.Generate(suffixLen, suffixLen/3, 0, true, true)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s-%s", prefix, suffix), nil
	}, nil
}
