package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name ScoreLookup --dir ../domain/livescoring --output domain/livescoring --outpkg livescoringmock --filename score_lookup_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Directory --dir ../domain/roster --output domain/roster --outpkg rostermock --filename directory_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Repository --dir ../domain/user --output domain/user --outpkg usermock --filename repository_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name JobRunner --dir ../scheduler --output scheduler --outpkg schedulermock --filename job_runner_mock.go
