package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/parleyhq/parley/pkg/api"
	"github.com/parleyhq/parley/pkg/util"
)

type (
	// LuaEnv provides a sandboxed Lua execution environment with state
	// pooling and a bounded compiled-script cache. Scripted steps cover
	// the purely presentational workflows (menus, fallbacks) that change
	// too often to deserve a Go implementation
	LuaEnv struct {
		statePool chan *lua.State
		scripts   *util.LRUCache[*CompiledLua]
	}

	// CompiledLua is a compiled script ready for pooled execution
	CompiledLua struct {
		bytecode []byte
		argNames []string
	}

	// LuaStep runs a sandboxed Lua script as a workflow step. The script
	// receives message, context, and session tables and returns a table
	// describing the step result
	LuaStep struct {
		id     api.StepID
		env    *LuaEnv
		script *CompiledLua
	}
)

const (
	luaStatePoolSize    = 10
	luaScriptCacheSize  = 64
	luaGlobalTableIndex = -2
	luaArrayTableIndex  = -3
	luaMapTableIndex    = -3
	luaArgLocalTemplate = "local %s = select(%d, ...)"
	luaScriptSeparator  = "\n"
	luaGlobalTableName  = "_G"
)

var (
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
	ErrLuaBadAction = errors.New("lua step returned unsupported action")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// luaStepArgs are the locals every step script sees, in push order
var luaStepArgs = []string{"message", "context", "session"}

// luaStepActions are the actions a script may return; jumps and waits
// stay with compiled steps
var luaStepActions = map[api.StepAction]struct{}{
	api.ActionContinue: {},
	api.ActionRepeat:   {},
	api.ActionComplete: {},
	api.ActionAbort:    {},
}

var _ api.Step = (*LuaStep)(nil)

// NewLuaEnv creates a Lua execution environment with a state pool for
// efficient script reuse
func NewLuaEnv() *LuaEnv {
	return &LuaEnv{
		statePool: make(chan *lua.State, luaStatePoolSize),
		scripts:   util.NewLRUCache[*CompiledLua](luaScriptCacheSize),
	}
}

// NewLuaStep compiles the script and wraps it as a step. Compilation
// failures surface here so definition loading fails at startup rather
// than mid-conversation
func NewLuaStep(
	id api.StepID, env *LuaEnv, script string,
) (*LuaStep, error) {
	compiled, err := env.compileCached(id, script)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", id, err)
	}
	return &LuaStep{id: id, env: env, script: compiled}, nil
}

func (s *LuaStep) ID() api.StepID {
	return s.id
}

func (s *LuaStep) Execute(
	_ context.Context, msg *api.Message, sess *api.Session, wc api.Context,
) (*api.StepResult, error) {
	inputs := map[string]any{
		"message": map[string]any{
			"text":    msg.Text,
			"intent":  string(msg.Intent),
			"user_id": string(msg.UserID),
		},
		"context": map[string]any(wc),
		"session": sessionTable(sess),
	}

	out, err := s.env.run(s.script, inputs)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", s.id, err)
	}
	return resultFromLua(out)
}

func sessionTable(sess *api.Session) map[string]any {
	if sess == nil {
		return map[string]any{"last_intent": "", "turns": 0}
	}
	return map[string]any{
		"last_intent": string(sess.LastIntent),
		"turns":       len(sess.Turns),
	}
}

// resultFromLua converts the script's return table into a step result
func resultFromLua(args map[string]any) (*api.StepResult, error) {
	action := api.ActionComplete
	if a, ok := args["action"].(string); ok && a != "" {
		action = api.StepAction(a)
	}
	if _, ok := luaStepActions[action]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrLuaBadAction, action)
	}

	res := api.NewResult(action)
	if text, ok := args["text"].(string); ok && text != "" {
		res.WithText(text)
	}
	if updates, ok := args["updates"].(map[string]any); ok {
		res.WithUpdates(api.Context(updates))
	}
	if raw, ok := args["quick_replies"].([]any); ok {
		if replies := quickRepliesFromLua(raw); len(replies) > 0 {
			res.WithQuickReplies(replies...)
		}
	}
	return res, nil
}

func quickRepliesFromLua(raw []any) []api.QuickReply {
	var res []api.QuickReply
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		var qr api.QuickReply
		if label, ok := m["label"].(string); ok {
			qr.Label = label
		}
		if intent, ok := m["intent"].(string); ok {
			qr.Intent = api.IntentID(intent)
		}
		if qr.Label != "" {
			res = append(res, qr)
		}
	}
	return res
}

func (e *LuaEnv) compileCached(
	id api.StepID, script string,
) (*CompiledLua, error) {
	key := fmt.Sprintf("%s\x00%s", id, script)
	return e.scripts.Get(key, func() (*CompiledLua, error) {
		return e.compile(script, luaStepArgs)
	})
}

func (e *LuaEnv) compile(
	script string, argNames []string,
) (*CompiledLua, error) {
	argLocals := make([]string, len(argNames))
	for i, name := range argNames {
		argLocals[i] = fmt.Sprintf(luaArgLocalTemplate, name, i+1)
	}

	src := strings.Join([]string{
		strings.Join(argLocals, luaScriptSeparator), script,
	}, luaScriptSeparator)

	L := lua.NewState()

	e.setupSandbox(L)

	if err := lua.LoadString(L, src); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, err
	}

	return &CompiledLua{
		bytecode: buf.Bytes(),
		argNames: argNames,
	}, nil
}

func (e *LuaEnv) setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
}

func (e *LuaEnv) getState() *lua.State {
	select {
	case L := <-e.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (e *LuaEnv) returnState(L *lua.State) {
	L.SetTop(0)

	select {
	case e.statePool <- L:
	default:
	}
}

func (e *LuaEnv) run(
	c *CompiledLua, inputs map[string]any,
) (map[string]any, error) {
	L := e.getState()
	defer e.returnState(L)

	e.setupSandbox(L)
	if err := L.Load(bytes.NewReader(c.bytecode), "chunk", "b"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	for _, name := range c.argNames {
		pushLuaArg(L, inputs, name)
	}

	if err := L.ProtectedCall(len(c.argNames), 1, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}

	var result map[string]any
	if L.IsTable(-1) {
		result = luaTableToMap(L, -1)
	} else {
		result = map[string]any{"result": luaToGo(L, -1)}
	}
	L.Pop(1)

	return result, nil
}

func pushLuaArg(L *lua.State, inputs map[string]any, argName string) {
	if value, ok := inputs[argName]; ok {
		goToLua(L, value)
		return
	}
	L.PushNil()
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case []any:
		pushLuaArray(L, v)
	case map[string]any:
		pushLuaMap(L, v)
	case api.Context:
		pushLuaMap(L, v)
	case nil:
		L.PushNil()
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func pushLuaArray(L *lua.State, arr []any) {
	L.CreateTable(len(arr), 0)
	for i, item := range arr {
		L.PushInteger(i + 1)
		goToLua(L, item)
		L.SetTable(luaArrayTableIndex)
	}
}

func pushLuaMap(L *lua.State, m map[string]any) {
	L.CreateTable(0, len(m))
	for k, val := range m {
		L.PushString(k)
		goToLua(L, val)
		L.SetTable(luaMapTableIndex)
	}
}

func luaNumberToGo(L *lua.State, index int) any {
	num, _ := L.ToNumber(index)
	if num == float64(int(num)) {
		return int(num)
	}
	return num
}

func luaToGo(L *lua.State, index int) any {
	switch {
	case L.IsNil(index):
		return nil
	case L.IsBoolean(index):
		return L.ToBoolean(index)
	case L.IsNumber(index):
		return luaNumberToGo(L, index)
	case L.IsString(index):
		s, _ := L.ToString(index)
		return s
	case L.IsTable(index):
		return luaTableToAny(L, index)
	default:
		return nil
	}
}

func luaTableToMap(L *lua.State, index int) map[string]any {
	result := map[string]any{}

	L.PushNil()
	for L.Next(index - 1) {
		if L.IsString(-2) {
			key, _ := L.ToString(-2)
			result[key] = luaToGo(L, -1)
		}
		L.Pop(1)
	}

	return result
}

func luaTableToAny(L *lua.State, index int) any {
	isArray := true
	length := 0

	L.PushNil()
	for L.Next(index - 1) {
		if !L.IsNumber(-2) {
			isArray = false
			L.Pop(2)
			break
		}
		length++
		L.Pop(1)
	}

	if isArray && length > 0 {
		return convertLuaArray(L, index, length)
	}

	result := map[string]any{}
	L.PushNil()
	for L.Next(index - 1) {
		var key string
		if !L.IsString(-2) {
			key = fmt.Sprintf("%v", luaToGo(L, -2))
			result[key] = luaToGo(L, -1)
			L.Pop(1)
			continue
		}
		key, _ = L.ToString(-2)
		result[key] = luaToGo(L, -1)
		L.Pop(1)
	}

	return result
}

func convertLuaArray(L *lua.State, index, length int) []any {
	arr := make([]any, length)
	absIndex := index
	if index < 0 {
		absIndex = L.Top() + index + 1
	}
	for i := 1; i <= length; i++ {
		L.RawGetInt(absIndex, i)
		arr[i-1] = luaToGo(L, -1)
		L.Pop(1)
	}
	return arr
}
