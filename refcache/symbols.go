package refcache

// AppPackage is the host package that owns the engine-facing classes.
const AppPackage = "dev/rushii/ktor_impersonate"

// ClassKey names a cached host class.
type ClassKey uint8

const (
	Boolean ClassKey = iota
	Class
	IllegalArgumentException
	List
	Long
	RuntimeException
	Set
	Sink
	ClientConfig
	Callbacks
	ResponseSource
	HeadersBuilder
	StringValues
	StringValuesBuilder
	numClasses
)

// MethodKey names a cached host method.
type MethodKey uint8

const (
	BooleanValue MethodKey = iota
	ClassGetName
	ListToArray
	LongValue
	SetToArray
	SinkWrite
	ConfigVerboseLogging
	ConfigPreset
	ConfigRequestTimeout
	ConfigConnectTimeout
	ConfigIdleTimeout
	ConfigAllowInvalidCertificates
	ConfigHTTPSOnly
	CallbacksOnError
	CallbacksOnResponse
	HeadersBuilderInit
	HeadersBuilderBuild
	StringValuesGetAll
	StringValuesNames
	StringValuesBuilderAppend
	numMethods
)

// FieldKey names a cached host field.
type FieldKey uint8

const (
	ResponseSourceRequestID FieldKey = iota
	numFields
)

// Host class names.
const (
	BooleanClass                  = "java/lang/Boolean"
	ClassClass                    = "java/lang/Class"
	IllegalArgumentExceptionClass = "java/lang/IllegalArgumentException"
	ListClass                     = "java/util/List"
	LongClass                     = "java/lang/Long"
	RuntimeExceptionClass         = "java/lang/RuntimeException"
	SetClass                      = "java/util/Set"
	SinkClass                     = "kotlinx/io/Sink"
	ClientConfigClass             = AppPackage + "/ImpersonateConfig"
	CallbacksClass                = AppPackage + "/internal/NativeEngine$Callbacks"
	ResponseSourceClass           = AppPackage + "/internal/ResponseSource"
	HeadersBuilderClass           = "io/ktor/http/HeadersBuilder"
	StringValuesClass             = "io/ktor/util/StringValues"
	StringValuesBuilderClass      = "io/ktor/util/StringValuesBuilder"
)

type memberSymbol struct {
	name  string
	sig   string
	class ClassKey
}

var classSymbols = [numClasses]string{
	Boolean:                  BooleanClass,
	Class:                    ClassClass,
	IllegalArgumentException: IllegalArgumentExceptionClass,
	List:                     ListClass,
	Long:                     LongClass,
	RuntimeException:         RuntimeExceptionClass,
	Set:                      SetClass,
	Sink:                     SinkClass,
	ClientConfig:             ClientConfigClass,
	Callbacks:                CallbacksClass,
	ResponseSource:           ResponseSourceClass,
	HeadersBuilder:           HeadersBuilderClass,
	StringValues:             StringValuesClass,
	StringValuesBuilder:      StringValuesBuilderClass,
}

var methodSymbols = [numMethods]memberSymbol{
	BooleanValue:                   {class: Boolean, name: "booleanValue", sig: "()Z"},
	ClassGetName:                   {class: Class, name: "getName", sig: "()Ljava/lang/String;"},
	ListToArray:                    {class: List, name: "toArray", sig: "()[Ljava/lang/Object;"},
	LongValue:                      {class: Long, name: "longValue", sig: "()J"},
	SetToArray:                     {class: Set, name: "toArray", sig: "()[Ljava/lang/Object;"},
	SinkWrite:                      {class: Sink, name: "write", sig: "([BII)V"},
	ConfigVerboseLogging:           {class: ClientConfig, name: "getVerboseLogging", sig: "()Z"},
	ConfigPreset:                   {class: ClientConfig, name: "getPreset", sig: "()Ljava/lang/String;"},
	ConfigRequestTimeout:           {class: ClientConfig, name: "getRequestTimeoutMillis", sig: "()Ljava/lang/Long;"},
	ConfigConnectTimeout:           {class: ClientConfig, name: "getConnectTimeoutMillis", sig: "()Ljava/lang/Long;"},
	ConfigIdleTimeout:              {class: ClientConfig, name: "getIdleTimeout", sig: "()Ljava/lang/Long;"},
	ConfigAllowInvalidCertificates: {class: ClientConfig, name: "getAllowInvalidCertificates", sig: "()Ljava/lang/Boolean;"},
	ConfigHTTPSOnly:                {class: ClientConfig, name: "getHttpsOnly", sig: "()Ljava/lang/Boolean;"},
	CallbacksOnError:               {class: Callbacks, name: "onError", sig: "(Ljava/lang/String;)V"},
	CallbacksOnResponse:            {class: Callbacks, name: "onResponse", sig: "(Ljava/lang/String;ILio/ktor/http/Headers;)V"},
	HeadersBuilderInit:             {class: HeadersBuilder, name: "<init>", sig: "(I)V"},
	HeadersBuilderBuild:            {class: HeadersBuilder, name: "build", sig: "()Lio/ktor/http/Headers;"},
	StringValuesGetAll:             {class: StringValues, name: "getAll", sig: "(Ljava/lang/String;)Ljava/util/List;"},
	StringValuesNames:              {class: StringValues, name: "names", sig: "()Ljava/util/Set;"},
	StringValuesBuilderAppend:      {class: StringValuesBuilder, name: "append", sig: "(Ljava/lang/String;Ljava/lang/String;)V"},
}

var fieldSymbols = [numFields]memberSymbol{
	ResponseSourceRequestID: {class: ResponseSource, name: "requestId", sig: "I"},
}

func (s memberSymbol) String() string {
	return classSymbols[s.class] + "." + s.name + s.sig
}
