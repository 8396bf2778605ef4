package hosttest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wippyai/impersonate-engine/host"
)

// MethodFunc implements a fake host method. Returned *Object values are handed
// to the caller as new local references.
type MethodFunc func(e *Env, this *Object, args []any) (any, error)

// Class is a fake host class.
type Class struct {
	methods map[string]*method
	fields  map[string]*field
	object  *Object
	Name    string
	Supers  []string
}

type method struct {
	impl  MethodFunc
	class *Class
	name  string
	sig   string
	id    host.MethodID
}

type field struct {
	class *Class
	name  string
	sig   string
	id    host.FieldID
}

// Object is a fake host object.
type Object struct {
	Value any
	Class *Class
	ints  map[host.FieldID]int32
	mu    sync.Mutex
}

// Exception records an exception raised through an Env.
type Exception struct {
	Class   string
	Message string
}

func (e Exception) String() string {
	return e.Class + ": " + e.Message
}

type refEntry struct {
	obj    *Object
	global bool
}

// VM is an in-memory host runtime.
type VM struct {
	refs        map[host.Ref]refEntry
	classes     map[string]*Class
	methods     map[host.MethodID]*method
	fields      map[host.FieldID]*field
	failClasses map[string]bool
	thrown      []Exception
	deleted     []string
	nextRef     host.Ref
	nextID      uintptr
	attached    atomic.Int32
	mu          sync.Mutex
}

// NewVM returns a VM with every class the engine resolves at load time.
func NewVM() *VM {
	vm := &VM{
		refs:        make(map[host.Ref]refEntry),
		classes:     make(map[string]*Class),
		methods:     make(map[host.MethodID]*method),
		fields:      make(map[host.FieldID]*field),
		failClasses: make(map[string]bool),
	}
	registerStandardClasses(vm)
	return vm
}

// NewEnv returns an Env for a host-owned thread.
func (vm *VM) NewEnv() *Env {
	return &Env{vm: vm}
}

// AttachCurrentThreadAsDaemon implements host.VM.
func (vm *VM) AttachCurrentThreadAsDaemon() (host.Env, error) {
	vm.attached.Add(1)
	return &Env{vm: vm, attached: true}, nil
}

// DetachCurrentThread implements host.VM.
func (vm *VM) DetachCurrentThread() error {
	vm.attached.Add(-1)
	return nil
}

// Attached returns the number of engine threads currently attached.
func (vm *VM) Attached() int {
	return int(vm.attached.Load())
}

// FailClass makes FindClass fail for name.
func (vm *VM) FailClass(name string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.failClasses[name] = true
}

// Thrown returns every exception raised so far.
func (vm *VM) Thrown() []Exception {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]Exception(nil), vm.thrown...)
}

// GlobalRefs returns the number of live global references.
func (vm *VM) GlobalRefs() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	n := 0
	for _, e := range vm.refs {
		if e.global {
			n++
		}
	}
	return n
}

// DeletedClassRefs returns the names of classes whose global references were
// deleted, in deletion order.
func (vm *VM) DeletedClassRefs() []string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]string(nil), vm.deleted...)
}

// DefineClass registers a class assignable to supers.
func (vm *VM) DefineClass(name string, supers ...string) *Class {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.defineClassLocked(name, supers...)
}

func (vm *VM) defineClassLocked(name string, supers ...string) *Class {
	if c, ok := vm.classes[name]; ok {
		return c
	}
	c := &Class{
		Name:    name,
		Supers:  supers,
		methods: make(map[string]*method),
		fields:  make(map[string]*field),
	}
	c.object = &Object{Class: vm.classes["java/lang/Class"], Value: c}
	vm.classes[name] = c
	return c
}

// DefineMethod adds a method to a class.
func (vm *VM) DefineMethod(c *Class, name, sig string, impl MethodFunc) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.nextID++
	m := &method{id: host.MethodID(vm.nextID), class: c, name: name, sig: sig, impl: impl}
	c.methods[name+sig] = m
	vm.methods[m.id] = m
}

// DefineField adds an int field to a class.
func (vm *VM) DefineField(c *Class, name, sig string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.nextID++
	f := &field{id: host.FieldID(vm.nextID), class: c, name: name, sig: sig}
	c.fields[name+sig] = f
	vm.fields[f.id] = f
}

// Class returns a registered class.
func (vm *VM) Class(name string) *Class {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.classes[name]
}

// NewObject creates an object of the named class and returns a local reference.
func (vm *VM) NewObject(className string, value any) host.Ref {
	c := vm.Class(className)
	if c == nil {
		panic("hosttest: unknown class " + className)
	}
	return vm.newRef(&Object{Class: c, Value: value}, false)
}

// Object resolves a reference.
func (vm *VM) Object(ref host.Ref) (*Object, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	e, ok := vm.refs[ref]
	return e.obj, ok
}

func (vm *VM) newRef(obj *Object, global bool) host.Ref {
	if obj == nil {
		return 0
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.nextRef++
	vm.refs[vm.nextRef] = refEntry{obj: obj, global: global}
	return vm.nextRef
}

func (vm *VM) assignable(c *Class, target string) bool {
	if c.Name == target {
		return true
	}
	for _, s := range c.Supers {
		if s == target {
			return true
		}
		if sc, ok := vm.classes[s]; ok && vm.assignable(sc, target) {
			return true
		}
	}
	return false
}

// Env is a fake per-thread host environment.
type Env struct {
	vm       *VM
	pending  *Exception
	attached bool
}

var _ host.Env = (*Env)(nil)

// Attached reports whether the env belongs to an engine-attached thread.
func (e *Env) Attached() bool { return e.attached }

// Exception returns the pending exception, if any.
func (e *Env) Exception() *Exception { return e.pending }

func (e *Env) throw(class, msg string) error {
	ex := Exception{Class: class, Message: msg}
	e.pending = &ex
	e.vm.mu.Lock()
	e.vm.thrown = append(e.vm.thrown, ex)
	e.vm.mu.Unlock()
	return fmt.Errorf("%s", ex)
}

func (e *Env) resolve(ref host.Ref) (*Object, error) {
	if ref == 0 {
		return nil, e.throw("java/lang/NullPointerException", "null reference")
	}
	obj, ok := e.vm.Object(ref)
	if !ok {
		return nil, fmt.Errorf("invalid reference %d", ref)
	}
	return obj, nil
}

func (e *Env) resolveClass(ref host.Ref) (*Class, error) {
	obj, err := e.resolve(ref)
	if err != nil {
		return nil, err
	}
	c, ok := obj.Value.(*Class)
	if !ok {
		return nil, fmt.Errorf("reference %d is not a class", ref)
	}
	return c, nil
}

func (e *Env) FindClass(name string) (host.Ref, error) {
	e.vm.mu.Lock()
	c, ok := e.vm.classes[name]
	fail := e.vm.failClasses[name]
	e.vm.mu.Unlock()
	if !ok || fail {
		return 0, e.throw("java/lang/NoClassDefFoundError", name)
	}
	return e.vm.newRef(c.object, false), nil
}

func (e *Env) GetObjectClass(obj host.Ref) (host.Ref, error) {
	o, err := e.resolve(obj)
	if err != nil {
		return 0, err
	}
	return e.vm.newRef(o.Class.object, false), nil
}

func (e *Env) IsInstanceOf(obj, class host.Ref) bool {
	if obj == 0 {
		return true
	}
	o, err := e.resolve(obj)
	if err != nil {
		return false
	}
	c, err := e.resolveClass(class)
	if err != nil {
		return false
	}
	e.vm.mu.Lock()
	defer e.vm.mu.Unlock()
	return e.vm.assignable(o.Class, c.Name)
}

func (e *Env) GetMethodID(class host.Ref, name, sig string) (host.MethodID, error) {
	c, err := e.resolveClass(class)
	if err != nil {
		return 0, err
	}
	e.vm.mu.Lock()
	m, ok := c.methods[name+sig]
	e.vm.mu.Unlock()
	if !ok {
		return 0, e.throw("java/lang/NoSuchMethodError", c.Name+"."+name+sig)
	}
	return m.id, nil
}

func (e *Env) GetFieldID(class host.Ref, name, sig string) (host.FieldID, error) {
	c, err := e.resolveClass(class)
	if err != nil {
		return 0, err
	}
	e.vm.mu.Lock()
	f, ok := c.fields[name+sig]
	e.vm.mu.Unlock()
	if !ok {
		return 0, e.throw("java/lang/NoSuchFieldError", c.Name+"."+name)
	}
	return f.id, nil
}

func (e *Env) invoke(this *Object, id host.MethodID, args []any) (any, error) {
	if e.pending != nil {
		return nil, fmt.Errorf("call with pending exception %s", e.pending)
	}
	e.vm.mu.Lock()
	m, ok := e.vm.methods[id]
	okClass := ok && e.vm.assignable(this.Class, m.class.Name)
	e.vm.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown method id %d", id)
	}
	if !okClass {
		return nil, fmt.Errorf("%s is not a %s", this.Class.Name, m.class.Name)
	}
	return m.impl(e, this, args)
}

func (e *Env) call(obj host.Ref, id host.MethodID, args []any) (any, error) {
	this, err := e.resolve(obj)
	if err != nil {
		return nil, err
	}
	return e.invoke(this, id, args)
}

func (e *Env) NewObject(class host.Ref, ctor host.MethodID, args ...any) (host.Ref, error) {
	c, err := e.resolveClass(class)
	if err != nil {
		return 0, err
	}
	obj := &Object{Class: c}
	if _, err := e.invoke(obj, ctor, args); err != nil {
		return 0, err
	}
	return e.vm.newRef(obj, false), nil
}

func (e *Env) CallObjectMethod(obj host.Ref, m host.MethodID, args ...any) (host.Ref, error) {
	v, err := e.call(obj, m, args)
	if err != nil {
		return 0, err
	}
	o, _ := v.(*Object)
	return e.vm.newRef(o, false), nil
}

func (e *Env) CallBooleanMethod(obj host.Ref, m host.MethodID, args ...any) (bool, error) {
	v, err := e.call(obj, m, args)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func (e *Env) CallLongMethod(obj host.Ref, m host.MethodID, args ...any) (int64, error) {
	v, err := e.call(obj, m, args)
	if err != nil {
		return 0, err
	}
	n, _ := v.(int64)
	return n, nil
}

func (e *Env) CallVoidMethod(obj host.Ref, m host.MethodID, args ...any) error {
	_, err := e.call(obj, m, args)
	return err
}

func (e *Env) GetIntField(obj host.Ref, f host.FieldID) (int32, error) {
	o, err := e.resolve(obj)
	if err != nil {
		return 0, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ints[f], nil
}

func (e *Env) SetIntField(obj host.Ref, f host.FieldID, v int32) error {
	o, err := e.resolve(obj)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ints == nil {
		o.ints = make(map[host.FieldID]int32)
	}
	o.ints[f] = v
	return nil
}

func (e *Env) NewString(s string) (host.Ref, error) {
	return e.vm.NewObject("java/lang/String", []byte(s)), nil
}

func (e *Env) StringBytes(str host.Ref) ([]byte, error) {
	o, err := e.resolve(str)
	if err != nil {
		return nil, err
	}
	b, ok := o.Value.([]byte)
	if !ok || o.Class.Name != "java/lang/String" {
		return nil, fmt.Errorf("reference %d is not a string", str)
	}
	return append([]byte(nil), b...), nil
}

func (e *Env) NewByteArray(b []byte) (host.Ref, error) {
	return e.vm.NewObject("[B", append([]byte(nil), b...)), nil
}

func (e *Env) ArrayLength(arr host.Ref) (int, error) {
	o, err := e.resolve(arr)
	if err != nil {
		return 0, err
	}
	switch v := o.Value.(type) {
	case []*Object:
		return len(v), nil
	case []byte:
		return len(v), nil
	default:
		return 0, fmt.Errorf("reference %d is not an array", arr)
	}
}

func (e *Env) ObjectArrayElement(arr host.Ref, i int) (host.Ref, error) {
	o, err := e.resolve(arr)
	if err != nil {
		return 0, err
	}
	elems, ok := o.Value.([]*Object)
	if !ok {
		return 0, fmt.Errorf("reference %d is not an object array", arr)
	}
	if i < 0 || i >= len(elems) {
		return 0, e.throw("java/lang/ArrayIndexOutOfBoundsException", fmt.Sprint(i))
	}
	return e.vm.newRef(elems[i], false), nil
}

func (e *Env) NewGlobalRef(obj host.Ref) (host.Ref, error) {
	o, err := e.resolve(obj)
	if err != nil {
		return 0, err
	}
	return e.vm.newRef(o, true), nil
}

func (e *Env) DeleteGlobalRef(ref host.Ref) {
	e.vm.mu.Lock()
	defer e.vm.mu.Unlock()
	entry, ok := e.vm.refs[ref]
	if !ok || !entry.global {
		return
	}
	if c, ok := entry.obj.Value.(*Class); ok {
		e.vm.deleted = append(e.vm.deleted, c.Name)
	}
	delete(e.vm.refs, ref)
}

func (e *Env) DeleteLocalRef(ref host.Ref) {
	e.vm.mu.Lock()
	defer e.vm.mu.Unlock()
	if entry, ok := e.vm.refs[ref]; ok && !entry.global {
		delete(e.vm.refs, ref)
	}
}

func (e *Env) ThrowNew(class host.Ref, msg string) error {
	c, err := e.resolveClass(class)
	if err != nil {
		return err
	}
	e.throw(c.Name, msg)
	return nil
}

func (e *Env) ExceptionCheck() bool { return e.pending != nil }

func (e *Env) ExceptionClear() { e.pending = nil }
