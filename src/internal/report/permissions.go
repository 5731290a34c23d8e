package report

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Field names of the permissions document. They match the files produced by earlier
// scanner versions so downstream auditing tools keep working.
const (
	keyFunction        = "Function"
	keyModifiers       = "Modifiers"
	keySenderChecks    = "msg.sender_conditions"
	keyReadInModifiers = "state_variables_read_inside_modifiers"
	keyWritten         = "state_variables_written"
	keyNonStored       = "immutables_and_constants"
	keyContractName    = "Contract_Name"
	keyFunctions       = "Functions"
	keyImplementation  = "Implementation_Contract_Address"
	keyProxy           = "Proxy_Address"
	keyStorageValues   = "storage_values"
)

// FunctionRecord is the permission summary of one guarded function.
type FunctionRecord struct {
	Function               string
	Modifiers              []string
	SenderConditions       []string
	ReadInsideModifiers    []string
	Written                []string
	ImmutablesAndConstants []string
	// Values duplicates resolved storage values of the variables the guards read.
	Values map[string]any
}

type ContractRecord struct {
	Name      string
	Functions []*FunctionRecord
}

// Entry is everything reported for one configured contract address.
type Entry struct {
	Address               string
	ProxyAddress          string
	ImplementationAddress string
	Contracts             []*ContractRecord
	StorageValues         map[string]any
}

// Report maps contract addresses to entries, keeping the order they were added in.
type Report struct {
	order   []string
	entries map[string]*Entry
}

func New() *Report {
	return &Report{entries: make(map[string]*Entry)}
}

func NewEntry(address string) *Entry {
	return &Entry{Address: address}
}

// Add stores the entry under its address, replacing an earlier entry for the same address.
func (r *Report) Add(e *Entry) {
	if _, ok := r.entries[e.Address]; !ok {
		r.order = append(r.order, e.Address)
	}
	r.entries[e.Address] = e
}

func (r *Report) Entry(address string) *Entry {
	return r.entries[address]
}

func (r *Report) Addresses() []string {
	return append([]string(nil), r.order...)
}

func (r *Report) Len() int {
	return len(r.order)
}

// SetContract stores the record, replacing one with the same contract name.
func (e *Entry) SetContract(c *ContractRecord) {
	for i, existing := range e.Contracts {
		if existing.Name == c.Name {
			e.Contracts[i] = c
			return
		}
	}
	e.Contracts = append(e.Contracts, c)
}

func (e *Entry) Contract(name string) *ContractRecord {
	for _, c := range e.Contracts {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Records returns every function record of the entry across contracts.
func (e *Entry) Records() []*FunctionRecord {
	var out []*FunctionRecord
	for _, c := range e.Contracts {
		out = append(out, c.Functions...)
	}
	return out
}

func (e *Entry) IsProxy() bool {
	return e.ProxyAddress != ""
}

func (f *FunctionRecord) ReadsInsideModifiers(name string) bool {
	for _, v := range f.ReadInsideModifiers {
		if v == name {
			return true
		}
	}
	return false
}

func (f *FunctionRecord) AddNonStored(name string) {
	for _, v := range f.ImmutablesAndConstants {
		if v == name {
			return
		}
	}
	f.ImmutablesAndConstants = append(f.ImmutablesAndConstants, name)
}

func (f *FunctionRecord) SetValue(name string, value any) {
	if f.Values == nil {
		f.Values = make(map[string]any)
	}
	f.Values[name] = value
}

// object writes JSON objects with a fixed key order.
type object struct {
	buf   bytes.Buffer
	count int
	err   error
}

func (o *object) field(key string, value any) {
	if o.err != nil {
		return
	}
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	default:
		raw, o.err = json.Marshal(v)
		if o.err != nil {
			return
		}
	}
	if o.count == 0 {
		o.buf.WriteByte('{')
	} else {
		o.buf.WriteByte(',')
	}
	k, _ := json.Marshal(key)
	o.buf.Write(k)
	o.buf.WriteByte(':')
	o.buf.Write(raw)
	o.count++
}

func (o *object) bytes() ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}
	if o.count == 0 {
		return []byte("{}"), nil
	}
	o.buf.WriteByte('}')
	return o.buf.Bytes(), nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var fixedFunctionKeys = map[string]bool{
	keyFunction: true, keyModifiers: true, keySenderChecks: true,
	keyReadInModifiers: true, keyWritten: true, keyNonStored: true,
}

func (f *FunctionRecord) MarshalJSON() ([]byte, error) {
	var o object
	o.field(keyFunction, f.Function)
	o.field(keyModifiers, orEmpty(f.Modifiers))
	o.field(keySenderChecks, orEmpty(f.SenderConditions))
	o.field(keyReadInModifiers, orEmpty(f.ReadInsideModifiers))
	o.field(keyWritten, orEmpty(f.Written))
	if len(f.ImmutablesAndConstants) > 0 {
		o.field(keyNonStored, f.ImmutablesAndConstants)
	}
	for _, k := range sortedKeys(f.Values) {
		// a variable named like a fixed field never shadows it
		if fixedFunctionKeys[k] {
			continue
		}
		o.field(k, f.Values[k])
	}
	return o.bytes()
}

func (c *ContractRecord) MarshalJSON() ([]byte, error) {
	fns := c.Functions
	if fns == nil {
		fns = []*FunctionRecord{}
	}
	var o object
	o.field(keyContractName, c.Name)
	o.field(keyFunctions, fns)
	return o.bytes()
}

func (e *Entry) MarshalJSON() ([]byte, error) {
	return e.marshal(true)
}

func (e *Entry) marshal(withValues bool) ([]byte, error) {
	var o object
	if e.ImplementationAddress != "" {
		o.field(keyImplementation, e.ImplementationAddress)
	}
	if e.ProxyAddress != "" {
		o.field(keyProxy, e.ProxyAddress)
	}
	for _, c := range e.Contracts {
		if !withValues {
			c = c.withoutValues()
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		o.field(c.Name, json.RawMessage(raw))
	}
	if withValues && len(e.StorageValues) > 0 {
		var values object
		for _, k := range sortedKeys(e.StorageValues) {
			values.field(k, e.StorageValues[k])
		}
		raw, err := values.bytes()
		if err != nil {
			return nil, err
		}
		o.field(keyStorageValues, json.RawMessage(raw))
	}
	return o.bytes()
}

func (c *ContractRecord) withoutValues() *ContractRecord {
	out := &ContractRecord{Name: c.Name, Functions: make([]*FunctionRecord, 0, len(c.Functions))}
	for _, f := range c.Functions {
		cp := *f
		cp.Values = nil
		out.Functions = append(out.Functions, &cp)
	}
	return out
}

// StaticJSON encodes the entry without anything read from chain storage.
// Two runs over the same sources produce the same bytes.
func (e *Entry) StaticJSON() ([]byte, error) {
	return e.marshal(false)
}

func (r *Report) MarshalJSON() ([]byte, error) {
	var o object
	for _, addr := range r.order {
		raw, err := json.Marshal(r.entries[addr])
		if err != nil {
			return nil, err
		}
		o.field(addr, json.RawMessage(raw))
	}
	return o.bytes()
}

// Encode renders the report the way it is persisted: indented by four spaces.
func (r *Report) Encode() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "    "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
