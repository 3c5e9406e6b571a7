// Package fakes provides test doubles for the interfaces wbctl depends on.
//
// Fakes are manually implemented (not generated) to provide precise control
// over test behavior. A FakePresenter plays the user by reacting to each
// presented form:
//
//	presenter := &fakes.FakePresenter{OnPresent: func(form login.Form, frame *fakes.FakeFrame) {
//	    frame.Send(login.EventSubmit, map[string]string{"wb-username": "alice", "wb-password": "secret"})
//	}}
//	ctrl := login.NewController(client, nil, presenter)
package fakes
