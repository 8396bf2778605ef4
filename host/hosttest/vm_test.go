package hosttest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVM_HeadersBuilderRoundTrip(t *testing.T) {
	vm := NewVM()
	env := vm.NewEnv()

	cls, err := env.FindClass(HeadersBuilderClass)
	require.NoError(t, err)
	ctor, err := env.GetMethodID(cls, "<init>", "(I)V")
	require.NoError(t, err)
	sb, err := env.FindClass(StringValuesBuilderClass)
	require.NoError(t, err)
	appendID, err := env.GetMethodID(sb, "append", "(Ljava/lang/String;Ljava/lang/String;)V")
	require.NoError(t, err)
	buildID, err := env.GetMethodID(cls, "build", "()Lio/ktor/http/Headers;")
	require.NoError(t, err)

	b, err := env.NewObject(cls, ctor, int32(2))
	require.NoError(t, err)
	for _, kv := range [][2]string{{"Set-Cookie", "a=1"}, {"Set-Cookie", "b=2"}} {
		k, _ := env.NewString(kv[0])
		v, _ := env.NewString(kv[1])
		require.NoError(t, env.CallVoidMethod(b, appendID, k, v))
	}
	h, err := env.CallObjectMethod(b, buildID)
	require.NoError(t, err)

	assert.Equal(t, []Header{{Name: "Set-Cookie", Values: []string{"a=1", "b=2"}}}, vm.Headers(h))
}

func TestVM_ThrowAndClear(t *testing.T) {
	vm := NewVM()
	env := vm.NewEnv()

	cls, err := env.FindClass(IllegalArgumentExceptionClass)
	require.NoError(t, err)
	require.NoError(t, env.ThrowNew(cls, "bad"))

	assert.True(t, env.ExceptionCheck())
	assert.Equal(t, &Exception{Class: IllegalArgumentExceptionClass, Message: "bad"}, env.Exception())
	env.ExceptionClear()
	assert.False(t, env.ExceptionCheck())
	assert.Len(t, vm.Thrown(), 1)
}

func TestVM_GlobalRefs(t *testing.T) {
	vm := NewVM()
	env := vm.NewEnv()

	cls, err := env.FindClass(LongClass)
	require.NoError(t, err)
	g, err := env.NewGlobalRef(cls)
	require.NoError(t, err)
	assert.Equal(t, 1, vm.GlobalRefs())

	env.DeleteLocalRef(g)
	assert.Equal(t, 1, vm.GlobalRefs(), "DeleteLocalRef must not drop a global")

	env.DeleteGlobalRef(g)
	assert.Equal(t, 0, vm.GlobalRefs())
	assert.Equal(t, []string{LongClass}, vm.DeletedClassRefs())
}

func TestVM_FailClass(t *testing.T) {
	vm := NewVM()
	vm.FailClass(SinkClass)
	env := vm.NewEnv()

	_, err := env.FindClass(SinkClass)
	assert.Error(t, err)
	assert.True(t, env.ExceptionCheck())
}

func TestVM_ResponseSource(t *testing.T) {
	vm := NewVM()
	src := vm.NewResponseSource(7)
	assert.Equal(t, int32(7), vm.RequestID(src))

	env := vm.NewEnv()
	cls, _ := env.FindClass(ResponseSourceClass)
	f, err := env.GetFieldID(cls, "requestId", "I")
	require.NoError(t, err)
	require.NoError(t, env.SetIntField(src, f, 0))
	assert.Equal(t, int32(0), vm.RequestID(src))
}

func TestVM_Attach(t *testing.T) {
	vm := NewVM()
	env, err := vm.AttachCurrentThreadAsDaemon()
	require.NoError(t, err)
	assert.True(t, env.(*Env).Attached())
	assert.Equal(t, 1, vm.Attached())
	require.NoError(t, vm.DetachCurrentThread())
	assert.Equal(t, 0, vm.Attached())
}
