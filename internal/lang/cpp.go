package lang

import (
	"github.com/smacker/go-tree-sitter/cpp"
)

// CPP is the registered C++ language.
const CPP = "cpp"

func init() {
	Languages[CPP] = &Language{
		Name: CPP,
		lang: cpp.GetLanguage(),
	}
}
