package domain

// GroupName identifies one broadcast group on the transport. A user has
// a group of their own connections; every channel has a group holding
// the connections of all its online members.
type GroupName string

func UserGroup(userID SubjectID) GroupName {
	return GroupName("user:" + userID.String())
}

func ChannelGroup(channelID SubjectID) GroupName {
	return GroupName("channel:" + channelID.String())
}
