// Package codeunit defines the CodeUnit inventory type and the artifact
// I/O contract every pipeline stage reads from and writes to.
package codeunit

import "encoding/json"

// Callee references one call made by a unit. The extractor emits either
// {target, context} objects or bare target strings.
type Callee struct {
	Target  string `json:"target"`
	Context string `json:"context,omitempty"`
}

// UnmarshalJSON accepts both the object form and a bare target string.
func (c *Callee) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Target = s
		c.Context = ""
		return nil
	}
	type callee Callee
	var decoded callee
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = Callee(decoded)
	return nil
}

// Consumer references a unit that imports or otherwise depends on another.
// The extractor emits either {id, filePath, kind} objects (sometimes keyed
// unitId instead of id) or bare id strings.
type Consumer struct {
	ID       string `json:"id"`
	FilePath string `json:"filePath,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// UnmarshalJSON accepts the object form (with id or unitId) and bare strings.
func (c *Consumer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Consumer{ID: s}
		return nil
	}
	var decoded struct {
		ID       string `json:"id"`
		UnitID   string `json:"unitId"`
		FilePath string `json:"filePath"`
		File     string `json:"file"`
		Kind     string `json:"kind"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	id := decoded.ID
	if id == "" {
		id = decoded.UnitID
	}
	path := decoded.FilePath
	if path == "" {
		path = decoded.File
	}
	*c = Consumer{ID: id, FilePath: path, Kind: decoded.Kind}
	return nil
}

// Import references a single import statement's source module.
type Import struct {
	Source string `json:"source"`
}

// HookCall records a single React hook invocation and how many times it
// occurs. The extractor emits either {name, count} objects or bare hook
// name strings; a bare string counts as one call.
type HookCall struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// UnmarshalJSON accepts both the object form and a bare name string.
func (h *HookCall) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*h = HookCall{Name: s, Count: 1}
		return nil
	}
	type hookCall HookCall
	var decoded hookCall
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*h = HookCall(decoded)
	return nil
}

// JSXNode is one node of a unit's rendered JSX tree.
type JSXNode struct {
	Tag      string     `json:"tag"`
	Children []*JSXNode `json:"children,omitempty"`
}

// Parameter describes one parameter of a function or component signature.
type Parameter struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

// NamedAccess references a store or data source a unit reads from.
type NamedAccess struct {
	Name string `json:"name"`
}

// CoOccurrence records how often another unit is imported alongside this one.
type CoOccurrence struct {
	UnitID string  `json:"unitId"`
	Count  float64 `json:"count,omitempty"`
	Ratio  float64 `json:"ratio,omitempty"`
}

// CoOccurrenceList decodes the coOccurrences field, which the extractor
// emits either as a list of {unitId, count, ratio} records or as a mapping
// of unit id to a bare number (or to a {count, ratio} object).
type CoOccurrenceList []CoOccurrence

// UnmarshalJSON accepts both the list form and the mapping form.
func (l *CoOccurrenceList) UnmarshalJSON(data []byte) error {
	var list []CoOccurrence
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var byID map[string]json.RawMessage
	if err := json.Unmarshal(data, &byID); err != nil {
		return err
	}
	result := make([]CoOccurrence, 0, len(byID))
	for id, raw := range byID {
		var weight float64
		if err := json.Unmarshal(raw, &weight); err == nil {
			result = append(result, CoOccurrence{UnitID: id, Ratio: weight})
			continue
		}
		var nested struct {
			Count float64 `json:"count"`
			Ratio float64 `json:"ratio"`
		}
		if err := json.Unmarshal(raw, &nested); err != nil {
			return err
		}
		result = append(result, CoOccurrence{UnitID: id, Count: nested.Count, Ratio: nested.Ratio})
	}
	*l = result
	return nil
}

// KindCounts decodes the consumerKinds rollup, which arrives either as a
// mapping of kind to count or as a flat list of kind strings.
type KindCounts map[string]int

// UnmarshalJSON accepts both the mapping form and the list form.
func (k *KindCounts) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err == nil {
		*k = m
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	counts := make(map[string]int, len(list))
	for _, kind := range list {
		counts[kind]++
	}
	*k = counts
	return nil
}

// CodeUnit is one extracted function, component, hook, or type declaration.
// It is produced upstream (source extraction, out of scope here) and is the
// sole required input to every derivation stage.
type CodeUnit struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	FilePath string `json:"filePath"`
	StartLine int   `json:"startLine,omitempty"`
	EndLine   int   `json:"endLine,omitempty"`

	Callees   []Callee   `json:"callees,omitempty"`
	Consumers []Consumer `json:"consumers,omitempty"`
	Imports   []Import   `json:"imports,omitempty"`

	JSXTree   *JSXNode   `json:"jsxTree,omitempty"`
	HookCalls []HookCall `json:"hookCalls,omitempty"`

	IsAsync           bool `json:"isAsync,omitempty"`
	HasErrorHandling  bool `json:"hasErrorHandling,omitempty"`
	HasLoadingState   bool `json:"hasLoadingState,omitempty"`
	HasEmptyState     bool `json:"hasEmptyState,omitempty"`
	HasRetryLogic     bool `json:"hasRetryLogic,omitempty"`
	RendersIteration  bool `json:"rendersIteration,omitempty"`
	RendersConditional bool `json:"rendersConditional,omitempty"`
	SideEffects       bool `json:"sideEffects,omitempty"`

	StoreAccess      []NamedAccess `json:"storeAccess,omitempty"`
	DataSourceAccess []NamedAccess `json:"dataSourceAccess,omitempty"`

	Parameters []Parameter `json:"parameters,omitempty"`
	Props      []Parameter `json:"props,omitempty"`
	ReturnType string      `json:"returnType,omitempty"`

	CalleeSequence map[string][]string `json:"calleeSequence,omitempty"`
	ChainPatterns  []interface{}       `json:"chainPatterns,omitempty"`
	CallDepth      map[string]int      `json:"callDepth,omitempty"`
	UniqueCallees  int                 `json:"uniqueCallees,omitempty"`

	ConsumerCount       int              `json:"consumerCount,omitempty"`
	ConsumerKinds       KindCounts       `json:"consumerKinds,omitempty"`
	ConsumerDirectories []string         `json:"consumerDirectories,omitempty"`
	CoOccurrences       CoOccurrenceList `json:"coOccurrences,omitempty"`
}

// ConsumerIDs returns the set of unit IDs that consume this unit, matching
// the defensive id/unitId-field fallback the extractor's consumer entries use.
func (u CodeUnit) ConsumerIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(u.Consumers))
	for _, c := range u.Consumers {
		if c.ID != "" {
			ids[c.ID] = struct{}{}
		}
	}
	return ids
}
