// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file bridges the build system and the runtime logic. It uses the Go
embed package to bake agronomy_rules.yaml directly into the compiled
binary, so the rule set is immutable at runtime and travels with the
executable.
*/

package enforcement

import (
	_ "embed"
)

// AgronomyRules holds the raw byte content of the
// 'agronomy_rules.yaml' file.
//
// This variable is populated at compile-time using the Go 'embed'
// directive. Baking the YAML into the binary ensures the validation
// rules cannot be tampered with on the host filesystem without
// recompiling the application.
//
// Usage:
//
//	// Pass these bytes directly to yaml.Unmarshal
//	err := yaml.Unmarshal(enforcement.AgronomyRules, &targetStruct)
//
//go:embed agronomy_rules.yaml
var AgronomyRules []byte
