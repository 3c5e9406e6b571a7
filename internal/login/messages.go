package login

// Messages holds the user-facing text of the login dialogs.
type Messages struct {
	Connecting          string
	LoginTitle          string
	LoggedInTitle       string
	LoggedInAs          string
	ProfileLink         string
	Username            string
	Password            string
	ClientID            string
	ClientSecret        string
	AccessToken         string
	AccessSecret        string
	LogIn               string
	LogOut              string
	Cancel              string
	UseOwnerOnly        string
	UsePassword         string
	DelegatedExplain    string
	Authorize           string
	InvalidCredentials  string
	AuthorizationFailed string
	LogoutFailed        string
	Unreachable         string
}

// DefaultMessages returns the English texts.
func DefaultMessages() Messages {
	return Messages{
		Connecting:          "Connecting to Wikibase...",
		LoginTitle:          "Log in to Wikibase",
		LoggedInTitle:       "Wikibase account",
		LoggedInAs:          "You are logged in as",
		ProfileLink:         "User page",
		Username:            "Username",
		Password:            "Password",
		ClientID:            "Consumer token",
		ClientSecret:        "Consumer secret",
		AccessToken:         "Access token",
		AccessSecret:        "Access secret",
		LogIn:               "Log in",
		LogOut:              "Log out",
		Cancel:              "Cancel",
		UseOwnerOnly:        "Log in with an owner-only consumer",
		UsePassword:         "Log in with username and password",
		DelegatedExplain:    "Authorize wbctl in your browser, then close the window to continue.",
		Authorize:           "Authorize",
		InvalidCredentials:  "Invalid credentials.",
		AuthorizationFailed: "Authorization did not complete. Try again.",
		LogoutFailed:        "Logout failed. You are still logged in.",
		Unreachable:         "Could not reach the backend.",
	}
}
