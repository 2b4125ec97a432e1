package filter

/*
Here the Env used in the event target filters is defined.
Once this struct is fixed, it should not be changed, otherwise filters in
history events may not compile any more (f.e. if properties are renamed etc.)
*/

type User struct {
	Id     string
	Name   string
	Status string
}

type Room struct {
	Name      string
	CreatorId string
}

type Source struct {
	User
	System string
}

type Client struct {
	ClientId string
}

type Target struct {
	User
	Client
}

type Env struct {
	Room
	Source
	Target
	Created int64
	Name    string
	Tags    map[string]string
}
