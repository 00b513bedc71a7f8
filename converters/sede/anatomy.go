package sede

// Column is one column of a dump table.
type Column struct {
	Name string
	Type string // INTEGER, TEXT, DATETIME or BOOLEAN
}

// Table is a Stack Exchange data dump table and its columns.
type Table struct {
	Name    string
	Columns []Column
}

// Anatomy lists the tables shipped in the public data dump. Queries touching
// anything else cannot run against the converted database.
var Anatomy = []Table{
	{"Badges", []Column{
		{"Id", "INTEGER"}, {"UserId", "INTEGER"}, {"Name", "TEXT"}, {"Date", "DATETIME"},
		{"Class", "INTEGER"}, {"TagBased", "BOOLEAN"},
	}},
	{"Comments", []Column{
		{"Id", "INTEGER"}, {"PostId", "INTEGER"}, {"Score", "INTEGER"}, {"Text", "TEXT"},
		{"CreationDate", "DATETIME"}, {"UserDisplayName", "TEXT"}, {"UserId", "INTEGER"},
		{"ContentLicense", "TEXT"},
	}},
	{"Posts", []Column{
		{"Id", "INTEGER"}, {"PostTypeId", "INTEGER"}, {"AcceptedAnswerId", "INTEGER"},
		{"ParentId", "INTEGER"}, {"CreationDate", "DATETIME"}, {"DeletionDate", "DATETIME"},
		{"Score", "INTEGER"}, {"ViewCount", "INTEGER"}, {"Body", "TEXT"}, {"OwnerUserId", "INTEGER"},
		{"OwnerDisplayName", "TEXT"}, {"LastEditorUserId", "INTEGER"}, {"LastEditorDisplayName", "TEXT"},
		{"LastEditDate", "DATETIME"}, {"LastActivityDate", "DATETIME"}, {"Title", "TEXT"},
		{"Tags", "TEXT"}, {"AnswerCount", "INTEGER"}, {"CommentCount", "INTEGER"},
		{"FavoriteCount", "INTEGER"}, {"ClosedDate", "DATETIME"}, {"CommunityOwnedDate", "DATETIME"},
		{"ContentLicense", "TEXT"},
	}},
	{"Votes", []Column{
		{"Id", "INTEGER"}, {"PostId", "INTEGER"}, {"VoteTypeId", "INTEGER"}, {"UserId", "INTEGER"},
		{"CreationDate", "DATETIME"}, {"BountyAmount", "INTEGER"},
	}},
	{"PostHistory", []Column{
		{"Id", "INTEGER"}, {"PostHistoryTypeId", "INTEGER"}, {"PostId", "INTEGER"},
		{"RevisionGUID", "TEXT"}, {"CreationDate", "DATETIME"}, {"UserId", "INTEGER"},
		{"UserDisplayName", "TEXT"}, {"Comment", "TEXT"}, {"Text", "TEXT"}, {"ContentLicense", "TEXT"},
	}},
	{"PostLinks", []Column{
		{"Id", "INTEGER"}, {"CreationDate", "DATETIME"}, {"PostId", "INTEGER"},
		{"RelatedPostId", "INTEGER"}, {"LinkTypeId", "INTEGER"},
	}},
	{"Users", []Column{
		{"Id", "INTEGER"}, {"Reputation", "INTEGER"}, {"CreationDate", "DATETIME"},
		{"DisplayName", "TEXT"}, {"LastAccessDate", "DATETIME"}, {"WebsiteUrl", "TEXT"},
		{"Location", "TEXT"}, {"AboutMe", "TEXT"}, {"Views", "INTEGER"}, {"UpVotes", "INTEGER"},
		{"DownVotes", "INTEGER"}, {"ProfileImageUrl", "TEXT"}, {"EmailHash", "TEXT"},
		{"AccountId", "INTEGER"},
	}},
	{"Tags", []Column{
		{"Id", "INTEGER"}, {"TagName", "TEXT"}, {"Count", "INTEGER"}, {"ExcerptPostId", "INTEGER"},
		{"WikiPostId", "INTEGER"},
	}},
}

// ExcludedTables are SEDE tables missing from the data dump.
var ExcludedTables = []string{
	"CloseAsOffTopicReasonTypes", "CloseReasonTypes", "FlagTypes", "PendingFlags",
	"PostFeedback", "PostHistoryTypes", "PostNotices", "PostNoticeTypes", "PostsWithDeleted",
	"PostTags", "PostTypes", "ReviewRejectionReasons", "ReviewTaskResults",
	"ReviewTaskResultTypes", "ReviewTasks", "ReviewTaskStates", "ReviewTaskTypes",
	"SuggestedEdits", "SuggestedEditVotes", "TagSynonyms", "VoteTypes",
}

func lookupTable(name string) (Table, bool) {
	for _, t := range Anatomy {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

func (t Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
