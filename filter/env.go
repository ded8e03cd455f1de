package filter

/*
Env is the variable environment message filter expressions are evaluated
against. Once this struct is fixed, it should not be changed, otherwise
expressions in existing configurations may not compile any more (f.e. if
properties are renamed etc.)
*/

type Env struct {
	Room     string
	Username string
	Message  string
	Time     string
	Self     bool
	Bot      bool
}
