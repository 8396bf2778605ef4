package host

// Ref is a reference to a host object. The zero Ref is the host null.
type Ref uintptr

// IsNull reports whether the reference is the host null.
func (r Ref) IsNull() bool { return r == 0 }

// MethodID identifies a resolved host method.
type MethodID uintptr

// FieldID identifies a resolved host field.
type FieldID uintptr

// VM is the process-wide handle to the host runtime.
type VM interface {
	// AttachCurrentThreadAsDaemon attaches the calling OS thread to the host
	// runtime and returns its Env. Daemon threads do not keep the host alive.
	AttachCurrentThreadAsDaemon() (Env, error)

	// DetachCurrentThread detaches the calling OS thread.
	DetachCurrentThread() error
}

// Env is the per-thread interface into the host runtime. An Env is only valid
// on the OS thread it was obtained on.
//
// Method arguments are passed as Go values: Ref for objects, bool, int32 and
// int64 for primitives.
type Env interface {
	FindClass(name string) (Ref, error)
	GetObjectClass(obj Ref) (Ref, error)
	IsInstanceOf(obj, class Ref) bool

	GetMethodID(class Ref, name, sig string) (MethodID, error)
	GetFieldID(class Ref, name, sig string) (FieldID, error)

	NewObject(class Ref, ctor MethodID, args ...any) (Ref, error)
	CallObjectMethod(obj Ref, m MethodID, args ...any) (Ref, error)
	CallBooleanMethod(obj Ref, m MethodID, args ...any) (bool, error)
	CallLongMethod(obj Ref, m MethodID, args ...any) (int64, error)
	CallVoidMethod(obj Ref, m MethodID, args ...any) error

	GetIntField(obj Ref, f FieldID) (int32, error)
	SetIntField(obj Ref, f FieldID, v int32) error

	// NewString creates a host string from UTF-8 text.
	NewString(s string) (Ref, error)
	// StringBytes returns the raw encoded bytes of a host string.
	StringBytes(str Ref) ([]byte, error)

	NewByteArray(b []byte) (Ref, error)
	ArrayLength(arr Ref) (int, error)
	ObjectArrayElement(arr Ref, i int) (Ref, error)

	NewGlobalRef(obj Ref) (Ref, error)
	DeleteGlobalRef(ref Ref)
	DeleteLocalRef(ref Ref)

	// ThrowNew raises a new exception of the given class. The exception is
	// delivered to the host when the native call returns.
	ThrowNew(class Ref, msg string) error
	ExceptionCheck() bool
	ExceptionClear()
}
