// Package typesig implements Stage T: type signature normalization. It
// strips parameter names and produces structural hashes that let two
// functions/components with identical shapes match regardless of naming.
package typesig

import (
	"strings"

	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/core"
)

// Signature is the Stage T output for a single unit.
type Signature struct {
	StrictHash string `json:"strict_hash"`
	LooseHash  string `json:"loose_hash"`
	Canonical  string `json:"canonical"`
	Arity      int    `json:"arity"`
}

type typeClass struct {
	hasVoid     bool
	hasFunction bool
	hasObject   bool
	hasArray    bool
}

// classifyType buckets a raw type string into broad structural categories
// using the same case-insensitive substring rules as the canonical checker.
func classifyType(t string) typeClass {
	lower := strings.ToLower(strings.TrimSpace(t))
	return typeClass{
		hasVoid:     lower == "void" || lower == "undefined" || lower == "never",
		hasFunction: strings.Contains(t, "=>") || strings.Contains(lower, "function") || strings.Contains(lower, "callback"),
		hasObject:   lower == "object" || strings.HasPrefix(t, "{") || strings.Contains(lower, "record"),
		hasArray:    strings.Contains(t, "[]") || strings.HasPrefix(lower, "array") || strings.Contains(lower, "list"),
	}
}

// Normalize derives strict/loose hashes and a canonical string for a
// function or component signature, given its ordered parameter types and
// return type.
func Normalize(params []codeunit.Parameter, returnType string) Signature {
	if returnType == "" {
		returnType = "any"
	}

	paramTypes := make([]string, len(params))
	for i, p := range params {
		ptype := p.Type
		if ptype == "" {
			ptype = "any"
		}
		paramTypes[i] = ptype
	}

	strictData := map[string]interface{}{
		"params": paramTypes,
		"return": returnType,
	}
	strictHash, _ := core.HashCanonicalJSON(strictData)

	retClass := classifyType(returnType)
	hasFunctionParam := false
	hasObjectParam := false
	hasArrayParam := false
	for _, pt := range paramTypes {
		c := classifyType(pt)
		hasFunctionParam = hasFunctionParam || c.hasFunction
		hasObjectParam = hasObjectParam || c.hasObject
		hasArrayParam = hasArrayParam || c.hasArray
	}

	looseData := map[string]interface{}{
		"arity":             len(paramTypes),
		"has_void_return":   retClass.hasVoid,
		"has_function_param": hasFunctionParam,
		"has_object_param":   hasObjectParam,
		"has_array_param":    hasArrayParam,
	}
	looseHash, _ := core.HashCanonicalJSON(looseData)

	canonicalParams := strings.Join(paramTypes, ", ")
	canonical := "(" + canonicalParams + ") => " + returnType

	return Signature{
		StrictHash: strictHash.String(),
		LooseHash:  looseHash.String(),
		Canonical:  canonical,
		Arity:      len(params),
	}
}

// paramsOf picks the unit's parameter list: functions/hooks use Parameters,
// components use Props.
func paramsOf(unit codeunit.CodeUnit) []codeunit.Parameter {
	if len(unit.Parameters) > 0 {
		return unit.Parameters
	}
	return unit.Props
}

// Compute derives the type signature of every unit, keyed by unit ID.
func Compute(units []codeunit.CodeUnit) map[string]Signature {
	result := make(map[string]Signature, len(units))
	for _, unit := range units {
		if unit.ID == "" {
			continue
		}
		result[unit.ID] = Normalize(paramsOf(unit), unit.ReturnType)
	}
	return result
}
