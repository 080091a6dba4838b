package core

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_core.go -package=mocks github.com/putto11262002/chatroom/core Broadcaster,HistoryLog,MembershipStore,UserStore
